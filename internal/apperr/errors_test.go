package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		kind Kind
	}{
		{"not found", NotFound("csv %s missing", "a.csv"), ErrNotFound, KindNotFound},
		{"invalid", InvalidFormat("no timestamp column"), ErrInvalidFormat, KindInvalidFormat},
		{"geometry", Geometry("unsupported %s", "LineString"), ErrGeometry, KindGeometry},
		{"config", Configuration("tiles base unset"), ErrConfiguration, KindConfiguration},
		{"wrapped", fmt.Errorf("loading markers: %w", NotFound("x")), ErrNotFound, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("errors.Is(%v, %v) = false", tt.err, tt.want)
			}
			if got := KindOf(tt.err); got != tt.kind {
				t.Fatalf("KindOf = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	if errors.Is(NotFound("x"), ErrInvalidFormat) {
		t.Fatal("NotFound matched ErrInvalidFormat")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain error should be KindUnknown")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(KindNotFound, os.ErrNotExist, "reading %s", "f.csv")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("cause lost")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("kind lost")
	}
	if err.Error() != "reading f.csv: "+os.ErrNotExist.Error() {
		t.Fatalf("message = %q", err.Error())
	}
}
