package ingestion

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchive_ImagesFiltersEntries(t *testing.T) {
	data := buildZip(t,
		zipEntry{name: "cover.jpg", body: "jpg-bytes"},
		zipEntry{name: "docs/"},
		zipEntry{name: "docs/readme.txt", body: "hello"},
		zipEntry{name: "nested/deep/IMG_0001.PNG", body: "png-bytes"},
		zipEntry{name: "weird.png/"},
		zipEntry{name: "thumbs.db", body: "junk"},
	)

	archive, err := OpenArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	var bodies []string
	for entry := range archive.Images() {
		names = append(names, entry.Name)
		rc, err := entry.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		bodies = append(bodies, string(b))
		assert.Equal(t, int64(len(b)), entry.Size)
	}

	assert.Equal(t, []string{"cover.jpg", "nested/deep/IMG_0001.PNG"}, names)
	assert.Equal(t, []string{"jpg-bytes", "png-bytes"}, bodies)
}

func TestArchive_ImagesStopsWhenConsumerStops(t *testing.T) {
	data := buildZip(t,
		zipEntry{name: "a.jpg", body: "a"},
		zipEntry{name: "b.jpg", body: "b"},
	)
	archive, err := OpenArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	count := 0
	for range archive.Images() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestOpenArchive_Corrupted(t *testing.T) {
	valid := buildZip(t, zipEntry{name: "a.jpg", body: "some image bytes"})

	cases := map[string][]byte{
		"truncated": valid[:len(valid)/2],
		"empty":     {},
		"not a zip": []byte("this is plainly not a zip container at all"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := OpenArchive(bytes.NewReader(data), int64(len(data)))
			require.ErrorIs(t, err, ErrCorruptArchive)
		})
	}
}

func TestOpenArchive_ReadFailureIsNotCorruption(t *testing.T) {
	boom := errors.New("device unplugged")

	_, err := OpenArchive(failingReaderAt{err: boom}, 4096)
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrCorruptArchive))
}

func TestOpenArchive_InsecureNamesStillEnumerate(t *testing.T) {
	data := buildZip(t, zipEntry{name: "../../etc/evil.jpg", body: "x"})

	archive, err := OpenArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for entry := range archive.Images() {
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"../../etc/evil.jpg"}, names)
}
