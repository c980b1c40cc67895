package utils

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostAndPrint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write([]byte(`{"echo":"` + string(body) + `"}`))
	}))
	defer srv.Close()

	resp, err := Post(srv.URL+"/estimate", "application/yaml", []byte("x"))
	AssertNil(t, err)
	var out bytes.Buffer
	AssertNil(t, PrintJsonResponse(&out, resp.Body))
	AssertEquals(t, "{\n\t\"echo\": \"x\"\n}\n", out.String())

	resp, err = Get(srv.URL + "/missing")
	AssertNonNil(t, err)
	AssertTrue(t, strings.Contains(err.Error(), "404"))
	resp.Body.Close()
}
