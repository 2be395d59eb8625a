package yoloprep

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestRecordError(t *testing.T) {
	cause := fmt.Errorf("%w: no shapes key", ErrMalformedDocument)
	err := error(newRecordError(ErrMalformedDocument, "a.json", cause))

	if !errors.Is(err, ErrMalformedDocument) {
		t.Error("expected the kind to match")
	}
	if got, want := err.Error(), "a.json: malformed document: no shapes key"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	err = &RecordError{Kind: ErrIO, Path: "b.png", Shape: 2, Err: os.ErrNotExist}
	if !errors.Is(err, ErrIO) || !errors.Is(err, os.ErrNotExist) {
		t.Error("expected both the kind and the cause to match")
	}
	if got, want := err.Error(), "i/o failure: b.png (shape 2): file does not exist"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	err = newRecordError(ErrMissingImage, "c.json", nil)
	if got, want := err.Error(), "missing image: c.json"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{newRecordError(ErrMissingImage, "a", nil), "missing_image"},
		{newRecordError(ErrDegenerateBox, "a", nil), "degenerate_box"},
		{newRecordError(ErrMalformedDocument, "a", nil), "malformed_document"},
		{newRecordError(ErrIO, "a", os.ErrPermission), "io"},
		{fmt.Errorf("wrapped: %w", newRecordError(ErrIO, "a", nil)), "io"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.err, tt.want, got)
		}
	}
}
