package htmltext

import (
	"strings"
	"testing"
)

const twoSum = `<p>Given an array of integers <code>nums</code>&nbsp;and an integer <code>target</code>, return <em>indices of the two numbers such that they add up to <code>target</code></em>.</p>
<p>You may assume that each input would have <strong><em>exactly</em> one solution</strong>, and you may not use the <em>same</em> element twice.</p>
<script>alert("x")</script>
<pre><strong>Input:</strong> nums = [2,7,11,15], target = 9
<strong>Output:</strong> [0,1]</pre>`

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Script", `a<script>var x = 1;</script>b`, "ab"},
		{"Style", `a<style type="text/css">p{}</style>b`, "ab"},
		{"Multiline", "a<SCRIPT>\nx\n</SCRIPT>b", "ab"},
		{"Untouched", "<p>plain</p>", "<p>plain</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Sanitize([]byte(tt.input))); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	got, err := PlainText(strings.NewReader("<p>Hello   <b>world</b></p><p>again</p>"))
	if err != nil {
		t.Fatalf("PlainText failed: %v", err)
	}
	if got != "Hello world\nagain" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestFromHTMLStripsMarkup(t *testing.T) {
	text, err := FromHTML(twoSum)
	if err != nil {
		t.Fatalf("FromHTML failed: %v", err)
	}
	if !strings.Contains(text, "Given an array of integers") {
		t.Errorf("expected statement text, got %q", text)
	}
	if strings.Contains(text, "<") || strings.Contains(text, "alert") {
		t.Errorf("markup or script leaked into text: %q", text)
	}
}

func TestTransformTreatsEmptyAsAbsent(t *testing.T) {
	v, err := Transform("   ")
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for empty content, got %v", v)
	}
	if _, err := Transform(42.0); err == nil {
		t.Fatal("expected error for non-string content")
	}
}
