package aprs

import (
	"errors"
	"testing"
)

func TestAccuracyTableAt45North(t *testing.T) {
	want := []int{0, 131, 1310, 13104, 78626}
	for amb, wantMeters := range want {
		got, err := Accuracy(45.0, -93.0, amb)
		if err != nil {
			t.Fatalf("Accuracy(45, -93, %d) returned error: %v", amb, err)
		}
		if got != wantMeters {
			t.Fatalf("Accuracy(45, -93, %d) = %d, want %d", amb, got, wantMeters)
		}
	}
}

func TestAccuracyMonotonicInAmbiguity(t *testing.T) {
	prev := -1
	for amb := 0; amb <= 4; amb++ {
		got, err := Accuracy(52.2, 13.4, amb)
		if err != nil {
			t.Fatalf("Accuracy(52.2, 13.4, %d) returned error: %v", amb, err)
		}
		if got <= prev {
			t.Fatalf("Accuracy(52.2, 13.4, %d) = %d, not above previous %d", amb, got, prev)
		}
		prev = got
	}
}

func TestAccuracyShrinksTowardPoles(t *testing.T) {
	atEquator, err := Accuracy(0, 0, 2)
	if err != nil {
		t.Fatalf("Accuracy at equator returned error: %v", err)
	}
	atSixty, err := Accuracy(60, 0, 2)
	if err != nil {
		t.Fatalf("Accuracy at 60N returned error: %v", err)
	}
	if atSixty >= atEquator {
		t.Fatalf("accuracy at 60N = %d, expected below equator value %d", atSixty, atEquator)
	}
}

func TestAccuracyRejectsOutOfRangeAmbiguity(t *testing.T) {
	for _, amb := range []int{-1, 5, 42} {
		if _, err := Accuracy(45, -93, amb); !errors.Is(err, ErrAmbiguity) {
			t.Fatalf("Accuracy(_, _, %d) error = %v, want ErrAmbiguity", amb, err)
		}
	}
}
