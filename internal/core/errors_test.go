package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: KindNetworkFailure},
		{name: "core error", err: NewError(KindForbidden, "edit", "", nil), want: KindForbidden},
		{name: "wrapped", err: fmt.Errorf("fetch: %w", NewError(KindNotFound, "", "", nil)), want: KindNotFound},
		{name: "deadline", err: context.DeadlineExceeded, want: KindNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoreErrorIs(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewError(KindConflict, "request_join", "already requested", nil))
	if !errors.Is(err, &CoreError{Kind: KindConflict}) {
		t.Fatalf("expected conflict to match")
	}
	if errors.Is(err, &CoreError{Kind: KindForbidden}) {
		t.Fatalf("forbidden must not match conflict")
	}
}

func TestUserMessageMalformedLooksLikeNetwork(t *testing.T) {
	got := UserMessage(NewError(KindMalformedResponse, "fetch", "bad json", nil))
	want := UserMessage(NewError(KindNetworkFailure, "fetch", "", nil))
	if got != want {
		t.Fatalf("UserMessage(malformed) = %q, want %q", got, want)
	}
}

func TestResultUnwrap(t *testing.T) {
	ok := Ok(42)
	v, err := ok.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("Ok.Unwrap() = %v, %v", v, err)
	}

	fail := Fail[int](errors.New("offline"))
	if fail.IsOk() {
		t.Fatalf("expected failure")
	}
	if _, err := fail.Unwrap(); KindOf(err) != KindNetworkFailure {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}

	if r := From("x", nil); !r.IsOk() || r.Value != "x" {
		t.Fatalf("From with nil error = %+v", r)
	}
}

func TestMessagePreview(t *testing.T) {
	if got := (Message{Content: "hi"}).Preview(); got != "hi" {
		t.Fatalf("Preview() = %q", got)
	}
	img := Message{Attachment: &Attachment{Kind: AttachmentImage}}
	if got := img.Preview(); got != "[image]" {
		t.Fatalf("Preview() = %q", got)
	}
	if !(Message{ID: TempIDPrefix + "1"}).IsProvisional() {
		t.Fatalf("tmp id must be provisional")
	}
}
