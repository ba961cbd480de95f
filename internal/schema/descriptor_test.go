package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectSchema() Descriptor {
	return Descriptor{
		"Status":               {KeyPath: "AppName"},
		"Project":              {KeyPath: "ProjectFileNo"},
		"GeneralEmployee":      {KeyPath: "EmployeeID"},
		"Mould":                {KeyPath: "MouldNo"},
		"ConcreteRecordHeader": {KeyPath: "ConcreteRecordID"},
		"ConcreteRecordLoad":   {KeyPath: "ConcreteRecordLoadID"},
	}
}

func TestDescriptor_Names(t *testing.T) {
	assert.Equal(t, []string{
		"ConcreteRecordHeader", "ConcreteRecordLoad", "GeneralEmployee", "Mould", "Project", "Status",
	}, projectSchema().Names())
}

func TestDescriptor_KeyPath(t *testing.T) {
	d := projectSchema()

	kp, ok := d.KeyPath("Project")
	require.True(t, ok)
	assert.Equal(t, "ProjectFileNo", kp)

	_, ok = d.KeyPath("Nope")
	assert.False(t, ok)
}

func TestDescriptor_Validate(t *testing.T) {
	require.NoError(t, projectSchema().Validate())

	tests := []struct {
		name string
		d    Descriptor
	}{
		{"empty", Descriptor{}},
		{"blank name", Descriptor{" ": {KeyPath: "id"}}},
		{"blank key path", Descriptor{"Project": {KeyPath: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.d.Validate(), ErrInvalid)
		})
	}
}

func TestDescriptor_Fingerprint(t *testing.T) {
	a := projectSchema()
	b := projectSchema()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	b["Project"] = Collection{KeyPath: "ProjectID"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDescriptor_CloneIsIndependent(t *testing.T) {
	a := projectSchema()
	b := a.Clone()
	delete(b, "Project")

	assert.True(t, a.Has("Project"))
	assert.False(t, b.Has("Project"))
}

func TestDescriptor_String(t *testing.T) {
	d := Descriptor{"Test2": {KeyPath: "TestTwoID"}, "Test1": {KeyPath: "TestOneID"}}
	assert.Equal(t, "Test1(TestOneID), Test2(TestTwoID)", d.String())
}
