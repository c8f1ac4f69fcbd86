package chart

import (
	"strings"
	"testing"
)

func TestBarsProducesSVG(t *testing.T) {
	html, err := Bars(Series{Labels: []string{"Funcionário", "Gerente"}, Values: []float64{4, 2}}, Opts{Title: "Usuários por perfil"})
	if err != nil {
		t.Fatalf("bars renderer error: %v", err)
	}
	output := string(html)
	if !strings.HasPrefix(output, "<svg") {
		t.Fatalf("expected svg output, got %s", output)
	}
	if strings.Count(output, "<rect") != 2 {
		t.Fatalf("expected one bar per label")
	}
	if !strings.Contains(output, "Funcionário") {
		t.Fatalf("expected axis label")
	}
}

func TestLineHandlesAllZeroSeries(t *testing.T) {
	html, err := Line(Series{Labels: []string{"01/05", "02/05", "03/05"}, Values: []float64{0, 0, 0}}, Opts{})
	if err != nil {
		t.Fatalf("line renderer error: %v", err)
	}
	if !strings.Contains(string(html), "<polyline") {
		t.Fatalf("expected polyline")
	}
}

func TestSeriesValidation(t *testing.T) {
	if _, err := Bars(Series{}, Opts{}); err == nil {
		t.Fatalf("expected error for empty series")
	}
	if _, err := Line(Series{Labels: []string{"a"}, Values: []float64{1, 2}}, Opts{}); err == nil {
		t.Fatalf("expected error for mismatched labels")
	}
	if _, err := Bars(Series{Labels: []string{"a"}, Values: []float64{-1}}, Opts{}); err == nil {
		t.Fatalf("expected error for negative value")
	}
}
