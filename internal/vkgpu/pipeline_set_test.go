package vkgpu

import (
	"testing"

	"github.com/spaghettifunk/vkrunner-go/internal/script"
)

func TestNDescSetsEmpty(t *testing.T) {
	if n := nDescSets(nil); n != 0 {
		t.Errorf("nDescSets(nil) = %d, want 0", n)
	}
}

func TestNDescSetsHighestPlusOne(t *testing.T) {
	buffers := []script.Buffer{
		{DescSet: 0, Binding: 0, Type: script.Ubo},
		{DescSet: 2, Binding: 1, Type: script.Ssbo},
		{DescSet: 3, Binding: 1, Type: script.Ssbo},
		{DescSet: 5, Binding: 5, Type: script.Ubo},
	}
	if n := nDescSets(buffers); n != 6 {
		t.Errorf("nDescSets = %d, want 6", n)
	}
}

func TestPushConstantSizeMax(t *testing.T) {
	scr := &script.Script{
		Commands: []script.Command{
			{Op: script.Operation{Kind: script.OpSetPushCommand, Offset: 0, Data: make([]byte, 6)}},
			{Op: script.Operation{Kind: script.OpSetPushCommand, Offset: 6, Data: make([]byte, 4)}},
			{Op: script.Operation{Kind: script.OpDrawRect}},
		},
	}
	if got := pushConstantSize(scr); got != 10 {
		t.Errorf("pushConstantSize = %d, want 10", got)
	}
}

func TestPushConstantSizeNone(t *testing.T) {
	scr := &script.Script{Commands: []script.Command{{Op: script.Operation{Kind: script.OpDrawRect}}}}
	if got := pushConstantSize(scr); got != 0 {
		t.Errorf("pushConstantSize = %d, want 0", got)
	}
}
