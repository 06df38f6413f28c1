package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cwbudde/algo-fxnet/model"
	"github.com/cwbudde/algo-fxnet/modelfile"
)

func TestDescribeConv(t *testing.T) {
	net, err := model.Build(model.ArchConv, model.DefaultOptions(), model.NewBackend(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f, err := modelfile.FromNetwork(net, modelfile.Options{})
	if err != nil {
		t.Fatalf("FromNetwork: %v", err)
	}
	var buf bytes.Buffer
	if err := describe(&buf, f); err != nil {
		t.Fatalf("describe: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+1+5+1 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "in_shape [null,1]" {
		t.Fatalf("in_shape line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "0   conv1d     tanh       [null,32]  7") {
		t.Fatalf("first layer row = %q", lines[2])
	}
	if !strings.Contains(lines[6], "linear") {
		t.Fatalf("output layer row = %q", lines[6])
	}
	if lines[7] != "total parameters: 30081" {
		t.Fatalf("total line = %q", lines[7])
	}
}

func TestShapeString(t *testing.T) {
	if got := shapeString(modelfile.Width(64)); got != "[null,64]" {
		t.Fatalf("shapeString = %q", got)
	}
}
