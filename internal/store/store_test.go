package store

import (
	"context"
	"testing"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/utils"
)

func TestMemoryPutGet(t *testing.T) {
	s := NewMemory(8)
	ctx := context.Background()
	utils.AssertNil(t, s.Put(ctx, ResultKey("r1"), []byte(`{"value":1}`), time.Hour))

	v, ok, err := s.Get(ctx, "estimate/r1")
	utils.AssertNil(t, err)
	utils.AssertTrue(t, ok)
	utils.AssertEquals(t, `{"value":1}`, string(v))

	_, ok, err = s.Get(ctx, ResultKey("r2"))
	utils.AssertNil(t, err)
	utils.AssertFalse(t, ok)
}

func TestMemoryTTL(t *testing.T) {
	s := NewMemory(8)
	ctx := context.Background()
	utils.AssertNil(t, s.Put(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, _ := s.Get(ctx, "k")
	utils.AssertFalse(t, ok)
}

func TestDefaultWithoutEtcd(t *testing.T) {
	config.Set(config.ETCD_ADDRESS, "")
	s, err := Default()
	utils.AssertNil(t, err)
	_, isMemory := s.(*Memory)
	utils.AssertTrue(t, isMemory)
}
