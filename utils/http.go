package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Post sends body to url and fails on any status other than 200.
func Post(url, contentType string, body []byte) (*http.Response, error) {
	resp, err := http.Post(url, contentType, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("Server response: %v", resp.Status)
	}
	return resp, nil
}

func Get(url string) (*http.Response, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("Server response: %v", resp.Status)
	}
	return resp, nil
}

// PrintJsonResponse copies an indented rendering of a JSON body to out.
func PrintJsonResponse(out io.Writer, resp io.ReadCloser) error {
	defer resp.Close()
	body, err := io.ReadAll(resp)
	if err != nil {
		return err
	}
	return PrintJson(out, body)
}

func PrintJson(out io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "\t"); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
