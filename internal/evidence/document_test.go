package evidence

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func sampleResult(encrypted float64) *Result {
	return &Result{
		Payload: map[string]any{
			"buckets": []any{"logs", "backups"},
			"region":  "us-gov-west-1",
		},
		Summary:    map[string]float64{"total": 2, "encrypted": encrypted},
		ProducedAt: time.Date(2025, 7, 11, 16, 0, 0, 0, time.UTC),
	}
}

func TestMergeComponent_IntoNewDocument(t *testing.T) {
	t.Parallel()

	doc, err := MergeComponent(NewDocument("storage"), "s3_encryption", sampleResult(2))
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(doc))

	require.Equal(t, "storage", DocumentCategory(doc))
	require.EqualValues(t, 0, DocumentVersion(doc))

	got, ok, err := Component(doc, "s3_encryption")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s3_encryption", got.Component)
	require.Equal(t, 2.0, got.Summary["encrypted"])
	require.Equal(t, "us-gov-west-1", got.Payload["region"])
}

func TestMergeComponent_NilDocument(t *testing.T) {
	t.Parallel()

	doc, err := MergeComponent(nil, "s3_encryption", sampleResult(1))
	require.NoError(t, err)
	require.Len(t, Components(doc), 1)
}

func TestMergeComponent_PreservesOtherComponentsByteForByte(t *testing.T) {
	t.Parallel()

	// hand-written entry with unusual spacing that a re-encode would normalize
	doc := []byte(`{"category":"storage","version":4,"components":{"rds_encryption":{ "summary" : {"total":3,  "encrypted":1}, "payload":{"z":1,"a":2} },"ebs":{"summary":{"total":1}}}}`)
	before := Components(doc)

	out, err := MergeComponent(doc, "s3_encryption", sampleResult(2))
	require.NoError(t, err)

	after := Components(out)
	require.Len(t, after, 3)
	require.Equal(t, string(before["rds_encryption"]), string(after["rds_encryption"]))
	require.Equal(t, string(before["ebs"]), string(after["ebs"]))
	require.EqualValues(t, 4, DocumentVersion(out))

	// replacing an existing entry also leaves the neighbours alone
	out2, err := MergeComponent(out, "rds_encryption", sampleResult(0))
	require.NoError(t, err)
	after2 := Components(out2)
	require.Equal(t, string(after["s3_encryption"]), string(after2["s3_encryption"]))
	require.Equal(t, string(after["ebs"]), string(after2["ebs"]))
	require.NotEqual(t, string(after["rds_encryption"]), string(after2["rds_encryption"]))
}

func TestMergeComponent_Idempotent(t *testing.T) {
	t.Parallel()

	r := sampleResult(1)
	once, err := MergeComponent(NewDocument("storage"), "s3_encryption", r)
	require.NoError(t, err)
	twice, err := MergeComponent(once, "s3_encryption", r)
	require.NoError(t, err)
	require.Equal(t, string(once), string(twice))
}

func TestMergeComponent_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	doc := NewDocument("storage")
	orig := string(doc)
	_, err := MergeComponent(doc, "s3_encryption", sampleResult(1))
	require.NoError(t, err)
	require.Equal(t, orig, string(doc))
}

func TestMergeComponent_Malformed(t *testing.T) {
	t.Parallel()

	doc := NewDocument("storage")

	tests := []struct {
		name   string
		result *Result
	}{
		{"nil result", nil},
		{"NaN counter", &Result{Summary: map[string]float64{"total": math.NaN()}}},
		{"Inf payload", &Result{Payload: map[string]any{"ratio": math.Inf(1)}}},
		{"unsupported payload type", &Result{Payload: map[string]any{"fn": func() {}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := MergeComponent(doc, "broken", tt.result)
			require.Nil(t, out)
			var mre *MalformedResultError
			require.True(t, errors.As(err, &mre), "error = %v", err)
			require.Equal(t, "broken", mre.Component)
		})
	}
}

func TestMergeComponent_InvalidNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "../etc", "has space", "-leading", "a/b"} {
		_, err := MergeComponent(NewDocument("storage"), name, sampleResult(1))
		require.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestMergeComponent_DottedNameStaysOneKey(t *testing.T) {
	t.Parallel()

	doc, err := MergeComponent(NewDocument("storage"), "s3.encryption", sampleResult(1))
	require.NoError(t, err)

	comps := Components(doc)
	require.Len(t, comps, 1)
	_, ok := comps["s3.encryption"]
	require.True(t, ok, "components = %v", comps)

	got, ok, err := Component(doc, "s3.encryption")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s3.encryption", got.Component)
}

func TestMergeComponent_CorruptDocument(t *testing.T) {
	t.Parallel()

	_, err := MergeComponent([]byte(`{"components":`), "s3", sampleResult(1))
	require.Error(t, err)
}

func TestSetVersion_OnlyTouchesVersion(t *testing.T) {
	t.Parallel()

	doc, err := MergeComponent(NewDocument("storage"), "s3_encryption", sampleResult(1))
	require.NoError(t, err)

	out, err := setVersion(doc, 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, DocumentVersion(out))
	require.Equal(t, string(Components(doc)["s3_encryption"]), string(Components(out)["s3_encryption"]))

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 3)
}
