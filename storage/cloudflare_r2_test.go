package storage

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicURL(t *testing.T) {
	mustParse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
			u.Path += "/"
		}
		return u
	}

	tests := []struct {
		name string
		base *url.URL
		key  string
		want string
	}{
		{"no base", nil, "a.json.gz", ""},
		{"empty key", mustParse("https://cdn.example.com"), "", ""},
		{"host only", mustParse("https://cdn.example.com"), "archives/1/x.json.gz", "https://cdn.example.com/archives/1/x.json.gz"},
		{"base path", mustParse("https://cdn.example.com/sabo"), "archives/1/x.json.gz", "https://cdn.example.com/sabo/archives/1/x.json.gz"},
		{"leading slash", mustParse("https://cdn.example.com/sabo/"), "/archives/1/x.json.gz", "https://cdn.example.com/sabo/archives/1/x.json.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicURL(tt.base, tt.key))
		})
	}
}

func TestCloudflareR2ConfigValidation(t *testing.T) {
	assert.False(t, CloudflareR2UploaderConfig{}.Enabled())
	assert.True(t, CloudflareR2UploaderConfig{BucketName: "sabo"}.Enabled())

	_, err := NewCloudflareR2Uploader(context.Background(), CloudflareR2UploaderConfig{BucketName: "sabo"}, nil)
	assert.ErrorIs(t, err, ErrIncompleteR2Config)
}

func TestCloudflareR2UploaderPublicURL(t *testing.T) {
	up, err := NewCloudflareR2Uploader(context.Background(), CloudflareR2UploaderConfig{
		AccountID:       "acc",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "sabo",
		PublicBaseURL:   "https://cdn.example.com/sabo",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/sabo/archives/7/a.json.gz", up.GetPublicURL("archives/7/a.json.gz"))
}
