package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

type stubDoer struct {
	resp *http.Response
	err  error
	last *http.Request
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestSendTextReturnsMessageID(t *testing.T) {
	doer := &stubDoer{resp: response(http.StatusOK, `{"ok":true,"result":{"message_id":42}}`)}
	client := &Client{http: doer, baseURL: "https://chat.test", token: "bot-token"}

	id, err := client.SendText(context.Background(), "chat-1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected message id 42, got %d", id)
	}
	if !strings.Contains(doer.last.URL.Path, "botbot-token/sendMessage") {
		t.Fatalf("unexpected url %s", doer.last.URL.Path)
	}

	var payload map[string]any
	body, _ := io.ReadAll(doer.last.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}
	if payload["chat_id"] != "chat-1" || payload["text"] != "hello" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestSendPhotoCarriesCaption(t *testing.T) {
	doer := &stubDoer{resp: response(http.StatusOK, `{"ok":true,"result":{"message_id":7}}`)}
	client := &Client{http: doer, baseURL: "https://chat.test", token: "tok"}

	if _, err := client.SendPhoto(context.Background(), "chat-1", "qr-bytes", "scan to pay"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload map[string]any
	body, _ := io.ReadAll(doer.last.Body)
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode request payload: %v", err)
	}
	if payload["caption"] != "scan to pay" {
		t.Fatalf("expected caption in payload, got %v", payload)
	}
}

func TestDeleteMessage(t *testing.T) {
	doer := &stubDoer{resp: response(http.StatusOK, `{"ok":true,"result":{}}`)}
	client := &Client{http: doer, baseURL: "https://chat.test", token: "tok"}

	if err := client.DeleteMessage(context.Background(), "chat-1", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(doer.last.URL.Path, "deleteMessage") {
		t.Fatalf("unexpected url %s", doer.last.URL.Path)
	}
}

func TestCallRejection(t *testing.T) {
	client := &Client{
		http:    &stubDoer{resp: response(http.StatusBadRequest, `{"ok":false,"description":"chat not found"}`)},
		baseURL: "https://chat.test",
		token:   "tok",
	}

	_, err := client.SendText(context.Background(), "missing", "hello")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCallTransportFailure(t *testing.T) {
	client := &Client{
		http:    &stubDoer{err: errors.New("connection reset")},
		baseURL: "https://chat.test",
		token:   "tok",
	}

	_, err := client.SendText(context.Background(), "chat-1", "hello")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
