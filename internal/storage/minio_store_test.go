package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefRoundTrip(t *testing.T) {
	ref := Ref("exam-captures", "exam/session/1700000000000.jpg")
	assert.Equal(t, "minio://exam-captures/exam/session/1700000000000.jpg", ref)

	bucket, object, err := ParseRef(ref)
	require.NoError(t, err)
	assert.Equal(t, "exam-captures", bucket)
	assert.Equal(t, "exam/session/1700000000000.jpg", object)
}

func TestParseRef_Rejects(t *testing.T) {
	for _, ref := range []string{
		"s3://bucket/key",
		"minio://bucket",
		"minio:///key",
		"minio://bucket/../etc/passwd",
	} {
		_, _, err := ParseRef(ref)
		assert.Error(t, err, ref)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", extension(""))
	assert.Equal(t, ".png", extension("image/png"))
	assert.Equal(t, "", extension("application/octet-stream"))
}
