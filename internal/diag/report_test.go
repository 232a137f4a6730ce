package diag

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Collects(t *testing.T) {
	var logs bytes.Buffer
	r := NewReport(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	r.IgnoreFile("a.xml", errors.New("bad markup"))
	r.IgnoreItem("b.xml", errors.New("parent cycle"))
	r.SkipItem("c.xml", "known wrong file")
	r.Anomaly("stray file %s", "x.txt")
	r.Warn("d.xml", "can't find parent %q", "p")
	r.KnownIssue("parent-typo", "e.xml", "renamed", false)
	r.KnownIssue("parent-typo", "f.xml", "renamed", true)
	r.CountAttribute("_inheritRemove", "true")
	r.CountAttribute("_inheritRemove", "true")
	r.CountAttribute("_inheritRemove", "TRUE")
	r.AddParentRelation("p.xml", "d.xml")
	r.AddParentRelation("p.xml", "c.xml")

	assert.Equal(t, Summary{IgnoredFiles: 1, IgnoredItems: 2, Anomalies: 1, Warnings: 1, KnownIssues: 2}, r.Summary())
	assert.Equal(t, []Ignored{{Path: "a.xml", Reason: "bad markup"}}, r.IgnoredFiles())
	assert.Equal(t, "known wrong file", r.IgnoredItems()[1].Reason)
	assert.Equal(t, []string{"stray file x.txt"}, r.Anomalies())
	assert.Equal(t, []Warning{{Path: "d.xml", Message: `can't find parent "p"`}}, r.Warnings())
	assert.Equal(t, 2, r.AttributeCount("_inheritRemove", "true"))
	assert.Equal(t, 1, r.AttributeCount("_inheritRemove", "TRUE"))
	assert.Equal(t, 0, r.AttributeCount("_other", "x"))
	assert.Equal(t, []string{"d.xml", "c.xml"}, r.ChildrenOf("p.xml"))

	// The quiet known issue is counted but not logged.
	assert.Equal(t, 1, strings.Count(logs.String(), "known issue"))
	assert.Contains(t, logs.String(), "item skipped")
}

func TestReport_Nil(t *testing.T) {
	var r *Report
	r.IgnoreFile("a", nil)
	r.IgnoreItem("a", nil)
	r.SkipItem("a", "")
	r.Anomaly("x")
	r.Warn("a", "x")
	r.KnownIssue("k", "a", "", false)
	r.CountAttribute("a", "b")
	r.AddParentRelation("a", "b")

	assert.Equal(t, Summary{}, r.Summary())
	assert.Nil(t, r.IgnoredFiles())
	assert.NotNil(t, r.Logger())
	require.NoError(t, r.WriteText(&bytes.Buffer{}))
}

func TestReport_Concurrent(t *testing.T) {
	r := NewReport(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.CountAttribute("_x", "1")
				r.Warn("p", "w")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, r.AttributeCount("_x", "1"))
	assert.Equal(t, 800, r.Summary().Warnings)
}

func TestReport_WriteText(t *testing.T) {
	r := NewReport(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	r.IgnoreFile("a.xml", errors.New("bad"))
	r.AddParentRelation("p.xml", "z.xml")
	r.AddParentRelation("p.xml", "b.xml")
	r.CountAttribute("_y", "2")
	r.CountAttribute("_x", "1")

	var out bytes.Buffer
	require.NoError(t, r.WriteText(&out))
	text := out.String()

	assert.Contains(t, text, "[IgnoredFiles] 1\n   [1] a.xml: bad\n")
	assert.Contains(t, text, "     Parent: \"p.xml\"\n       Child: \"b.xml\"\n       Child: \"z.xml\"\n")
	assert.Less(t, strings.Index(text, `"_x"`), strings.Index(text, `"_y"`))
	assert.Contains(t, text, "   = \"1\" (1x)\n")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestReport_WriteTextError(t *testing.T) {
	r := NewReport(nil)
	assert.EqualError(t, r.WriteText(failingWriter{}), "disk full")
}
