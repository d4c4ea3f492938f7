// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep691_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/unearth/pkg/python/pep691"
)

func TestParseProjectDetail(t *testing.T) {
	t.Parallel()
	detail, err := pep691.ParseProjectDetail([]byte(`{
		"meta": {"api-version": "1.0"},
		"name": "demo",
		"files": [
			{
				"filename": "demo-1.0.tar.gz",
				"url": "https://files.example.com/demo-1.0.tar.gz",
				"hashes": {"sha256": "0123"},
				"requires-python": ">=3.7",
				"upload-time": "2022-01-02T03:04:05Z",
				"size": 12345
			},
			{
				"filename": "demo-1.1.tar.gz",
				"url": "https://files.example.com/demo-1.1.tar.gz",
				"hashes": {},
				"yanked": true,
				"upload-time": "2022-01-02T03:04:05"
			},
			{
				"filename": "demo-1.2.tar.gz",
				"url": "https://files.example.com/demo-1.2.tar.gz",
				"hashes": {},
				"yanked": "cve-2022-0001"
			},
			{
				"filename": "demo-1.3-py3-none-any.whl",
				"url": "https://files.example.com/demo-1.3-py3-none-any.whl",
				"hashes": {},
				"yanked": false,
				"core-metadata": {"sha256": "abcd"}
			},
			{
				"filename": "demo-1.4-py3-none-any.whl",
				"url": "https://files.example.com/demo-1.4-py3-none-any.whl",
				"hashes": {},
				"data-dist-info-metadata": true
			}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1.0", detail.Meta.APIVersion)
	assert.Equal(t, "demo", detail.Name)
	require.Len(t, detail.Files, 5)

	plain := detail.Files[0]
	assert.Equal(t, "demo-1.0.tar.gz", plain.Filename)
	assert.Equal(t, map[string]string{"sha256": "0123"}, plain.Hashes)
	assert.Equal(t, ">=3.7", plain.RequiresPython)
	assert.Nil(t, plain.Yanked.Reason)
	require.NotNil(t, plain.UploadTime)
	assert.Equal(t, 2022, plain.UploadTime.Year())
	assert.EqualValues(t, 12345, plain.Size)
	assert.Nil(t, plain.MetadataHashes())

	// "yanked": true carries no reason but still means yanked; a
	// timestamp without a zone is accepted.
	boolYanked := detail.Files[1]
	require.NotNil(t, boolYanked.Yanked.Reason)
	assert.Equal(t, "", *boolYanked.Yanked.Reason)
	require.NotNil(t, boolYanked.UploadTime)
	assert.Equal(t, 5, boolYanked.UploadTime.Second())

	reasonYanked := detail.Files[2]
	require.NotNil(t, reasonYanked.Yanked.Reason)
	assert.Equal(t, "cve-2022-0001", *reasonYanked.Yanked.Reason)

	withMetadata := detail.Files[3]
	assert.Nil(t, withMetadata.Yanked.Reason)
	assert.Equal(t, map[string]string{"sha256": "abcd"}, withMetadata.MetadataHashes())

	// A bare true means "metadata available, digests unknown".
	legacyMetadata := detail.Files[4]
	metadata := legacyMetadata.MetadataHashes()
	require.NotNil(t, metadata)
	assert.Empty(t, metadata)
}

func TestParseProjectDetailErrors(t *testing.T) {
	t.Parallel()
	_, err := pep691.ParseProjectDetail([]byte(`{`))
	assert.Error(t, err)

	_, err = pep691.ParseProjectDetail([]byte(`{"files": [{"yanked": 42}]}`))
	assert.Error(t, err)

	_, err = pep691.ParseProjectDetail([]byte(`{"files": [{"upload-time": "not-a-time"}]}`))
	assert.Error(t, err)
}
