package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

var errMockInvalid = errors.New("mock spec is invalid")

// mockSelectableSpec implements validatingSelectable for testing
type mockSelectableSpec struct {
	name  string
	valid bool
}

func (s *mockSelectableSpec) Validate() error {
	if !s.valid {
		return errMockInvalid
	}
	return nil
}

func (s *mockSelectableSpec) Selector() string {
	return s.name
}

// mockSelectableStorer implements Storer[*mockSelectableSpec] for testing
type mockSelectableStorer struct {
	records map[string]*mockSelectableSpec
}

func (m *mockSelectableStorer) Save(id string, o *mockSelectableSpec) error {
	m.records[id] = o
	return nil
}

func (m *mockSelectableStorer) Get(id string) *mockSelectableSpec {
	return m.records[id]
}

func (m *mockSelectableStorer) GetAll() map[string]*mockSelectableSpec {
	return m.records
}

// mockReadWriter implements io.ReadWriter for testing Prompt
type mockReadWriter struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
}

func (m *mockReadWriter) Read(p []byte) (n int, err error) {
	return m.readBuf.Read(p)
}

func (m *mockReadWriter) Write(p []byte) (n int, err error) {
	return m.writeBuf.Write(p)
}

func TestNewSelectableStorer(t *testing.T) {
	tests := map[string]struct {
		records     map[string]*mockSelectableSpec
		expOptCount int
		expNonEmpty bool
	}{
		"empty store": {
			records:     map[string]*mockSelectableSpec{},
			expOptCount: 0,
			expNonEmpty: false,
		},
		"single viewer": {
			records: map[string]*mockSelectableSpec{
				"ava": {name: "Ava", valid: true},
			},
			expOptCount: 1,
			expNonEmpty: true,
		},
		"multiple viewers": {
			records: map[string]*mockSelectableSpec{
				"ava":    {name: "Ava", valid: true},
				"wraith": {name: "Wraith", valid: true},
				"seer":   {name: "Seer", valid: true},
			},
			expOptCount: 3,
			expNonEmpty: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mock := &mockSelectableStorer{records: tt.records}
			ss := NewSelectableStorer(mock)

			testutil.AssertEqual(t, "option count", len(ss.options), tt.expOptCount)

			if tt.expNonEmpty {
				if len(ss.output) == 0 {
					t.Errorf("expected output to be non-empty")
				}
			}
		})
	}
}

func TestSelectableStorerSelect(t *testing.T) {
	records := map[string]*mockSelectableSpec{
		"ava":    {name: "Ava", valid: true},
		"seer":   {name: "Seer", valid: true},
		"wraith": {name: "Wraith", valid: true},
	}
	mock := &mockSelectableStorer{records: records}
	ss := NewSelectableStorer(mock)

	tests := map[string]struct {
		index    int
		expEmpty bool
	}{
		"first":              {index: 1},
		"second":             {index: 2},
		"third":              {index: 3},
		"zero is invalid":    {index: 0, expEmpty: true},
		"negative index":     {index: -1, expEmpty: true},
		"index past the end": {index: 4, expEmpty: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			result := ss.Select(tt.index)

			if tt.expEmpty {
				testutil.AssertEqual(t, "result", result, "")
			} else {
				if result == "" {
					t.Errorf("expected non-empty identifier, got empty")
				}
				if _, ok := records[result]; !ok {
					t.Errorf("returned identifier %q not found in records", result)
				}
			}
		})
	}
}

func TestSelectableStorerSelectEmpty(t *testing.T) {
	mock := &mockSelectableStorer{records: map[string]*mockSelectableSpec{}}
	ss := NewSelectableStorer(mock)

	testutil.AssertEqual(t, "result", ss.Select(1), "")
}

func TestSelectableStorerPrompt(t *testing.T) {
	records := map[string]*mockSelectableSpec{
		"ava":    {name: "Ava", valid: true},
		"wraith": {name: "Wraith", valid: true},
	}
	mock := &mockSelectableStorer{records: records}
	ss := NewSelectableStorer(mock)

	// Options sort by selector, so 1 picks Ava.
	rw := &mockReadWriter{
		readBuf:  bytes.NewBufferString("1\n"),
		writeBuf: &bytes.Buffer{},
	}

	result, err := ss.Prompt(rw, "Who walks the layers?")
	if err != nil {
		t.Fatalf("prompting: %v", err)
	}

	testutil.AssertEqual(t, "selection", result, "ava")
	if !strings.Contains(rw.writeBuf.String(), "Ava") {
		t.Errorf("expected option listing in output, got %q", rw.writeBuf.String())
	}
}

func TestSelectableStorerPromptRejectsGarbage(t *testing.T) {
	records := map[string]*mockSelectableSpec{
		"ava": {name: "Ava", valid: true},
	}
	mock := &mockSelectableStorer{records: records}
	ss := NewSelectableStorer(mock)

	// Two bad answers, then a good one.
	rw := &mockReadWriter{
		readBuf:  bytes.NewBufferString("zero\n9\n1\n"),
		writeBuf: &bytes.Buffer{},
	}

	result, err := ss.Prompt(rw, "Who walks the layers?")
	if err != nil {
		t.Fatalf("prompting: %v", err)
	}

	testutil.AssertEqual(t, "selection", result, "ava")
	testutil.AssertEqual(t, "retry notices",
		strings.Count(rw.writeBuf.String(), "Invalid selection!"), 2)
}
