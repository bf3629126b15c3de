package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-pipeline-go/internal/types"
)

func meeting(title, video, link string) types.Meeting {
	return types.Meeting{
		Title:   title,
		Date:    types.NewDate(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)),
		Time:    "10:00 AM",
		Video:   video,
		BoxLink: link,
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	p := Path(t.TempDir())
	in := []types.Meeting{
		meeting("Regular Meeting", "https://v.example.gov/a.mp4", ""),
		meeting("Budget Hearing", "https://v.example.gov/b.mp4", "https://app.box.com/shared/static/x.mp4?dl=1"),
	}

	require.NoError(t, Save(p, in))
	out, err := Load(p)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[1].BoxLink, out[1].BoxLink)
	assert.True(t, in[0].Date.Equal(out[0].Date.Time))
}

func TestLoad_UnparseableDateKeepsRow(t *testing.T) {
	p := Path(t.TempDir())
	rows := `{"title":"Regular Meeting","date":"2025-01-08T00:00:00Z","time":"10:00 AM","video":"https://v.example.gov/a.mp4"}
{"title":"Budget","date":"Special Budget Hearing TBD","time":"Unknown Time","video":"https://v.example.gov/b.mp4"}
`
	require.NoError(t, os.WriteFile(p, []byte(rows), 0o644))

	out, err := Load(p)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 2025, out[0].Date.Year())
	assert.True(t, out[1].Date.IsZero())
	assert.Equal(t, "Special Budget Hearing TBD", out[1].DateText)
	assert.Equal(t, "https://v.example.gov/b.mp4", out[1].Video)

	// saved back as null date plus date_text, which loads the same way
	require.NoError(t, Save(p, out))
	again, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, out[1].DateText, again[1].DateText)
	assert.True(t, again[1].Date.IsZero())
}

func TestMerge(t *testing.T) {
	old := []types.Meeting{
		meeting("Old title A", "https://v.example.gov/a.mp4", "https://box/a"),
		meeting("Old title B", "https://v.example.gov/b.mp4", ""),
		meeting("Gone", "https://v.example.gov/gone.mp4", "https://box/gone"),
	}
	fresh := []types.Meeting{
		meeting("New title A", "https://v.example.gov/a.mp4", ""),
		meeting("New title B", "https://v.example.gov/b.mp4", ""),
		meeting("New C", "https://v.example.gov/c.mp4", ""),
	}

	got := Merge(fresh, old)

	require.Len(t, got, 3)
	assert.Equal(t, "New title A", got[0].Title, "non-link fields come from the fresh scrape")
	assert.Equal(t, "https://box/a", got[0].BoxLink)
	assert.Empty(t, got[1].BoxLink)
	assert.Empty(t, got[2].BoxLink)
	assert.Empty(t, fresh[0].BoxLink, "input is not mutated")
}

func TestMerge_ExactURLMatchOnly(t *testing.T) {
	old := []types.Meeting{meeting("A", "https://v.example.gov/a.mp4", "https://box/a")}
	fresh := []types.Meeting{meeting("A", "https://v.example.gov/a.mp4?x=1", "")}

	assert.Empty(t, Merge(fresh, old)[0].BoxLink)
}

func TestMerge_NoOldManifest(t *testing.T) {
	fresh := []types.Meeting{meeting("A", "https://v.example.gov/a.mp4", "")}
	assert.Equal(t, fresh, Merge(fresh, nil))
}

func TestFindByVideoName(t *testing.T) {
	ms := []types.Meeting{
		meeting("A", "https://v.example.gov/x/a.mp4", ""),
		meeting("No video", "", ""),
		meeting("B", "https://v.example.gov/x/b.mp4", ""),
	}
	assert.Equal(t, 2, FindByVideoName(ms, "b.mp4"))
	assert.Equal(t, -1, FindByVideoName(ms, "c.mp4"))
	assert.Equal(t, -1, FindByVideoName(ms, "mp4"))
}

func TestLock_Exclusive(t *testing.T) {
	p := Path(t.TempDir())

	unlock, err := Lock(p)
	require.NoError(t, err)

	_, err = Lock(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	unlock()
	unlock2, err := Lock(p)
	require.NoError(t, err)
	unlock2()
	_, statErr := os.Stat(p + ".lock")
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdate(t *testing.T) {
	p := Path(t.TempDir())
	require.NoError(t, Save(p, []types.Meeting{meeting("A", "https://v.example.gov/a.mp4", "")}))

	err := Update(p, func(ms []types.Meeting) ([]types.Meeting, error) {
		ms[0].BoxLink = "https://box/a"
		return ms, nil
	})
	require.NoError(t, err)

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "https://box/a", got[0].BoxLink)
	assert.NoFileExists(t, p+".lock")
}

func TestUpdate_ErrorLeavesManifest(t *testing.T) {
	p := Path(t.TempDir())
	require.NoError(t, Save(p, []types.Meeting{meeting("A", "https://v.example.gov/a.mp4", "")}))

	err := Update(p, func(ms []types.Meeting) ([]types.Meeting, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	got, err := Load(p)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
