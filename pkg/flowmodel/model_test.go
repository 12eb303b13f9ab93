package flowmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubSettings struct {
	Value string `json:"value"`
}

func (s *stubSettings) Kind() Kind     { return KindSelect }
func (s *stubSettings) Validate() error { return nil }
func (s *stubSettings) Clone() Settings {
	c := *s
	return &c
}
func (s *stubSettings) Fingerprint() string { return s.Value }

func TestArityAccepts(t *testing.T) {
	cases := []struct {
		name  string
		arity Arity
		count int
		want  bool
	}{
		{"below min", Arity{Min: 1, Max: 2}, 0, false},
		{"at min", Arity{Min: 1, Max: 2}, 1, true},
		{"at max", Arity{Min: 1, Max: 2}, 2, true},
		{"above max", Arity{Min: 1, Max: 2}, 3, false},
		{"unbounded accepts large count", Arity{Min: 0, Max: Unbounded}, 1000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.arity.Accepts(tc.count))
		})
	}
}

func TestNodeCloneIsIndependent(t *testing.T) {
	n := &Node{
		ID:       1,
		Kind:     KindSelect,
		Settings: &stubSettings{Value: "original"},
		Inputs:   []Connection{{SourceID: 5, Label: LabelMain}},
	}
	cp := n.Clone()

	cp.Settings.(*stubSettings).Value = "changed"
	cp.Inputs[0].SourceID = 99

	require.Equal(t, "original", n.Settings.(*stubSettings).Value)
	require.Equal(t, int64(5), n.Inputs[0].SourceID)
	require.Equal(t, n.ID, cp.ID)
}

func TestNodeCloneHandlesNilSettings(t *testing.T) {
	n := &Node{ID: 1, Kind: KindSelect}
	cp := n.Clone()
	require.Nil(t, cp.Settings)
}
