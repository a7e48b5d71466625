package lockprofile

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	examID = uuid.MustParse("6f1c1c52-1d0e-4a1b-9a55-0a4c3b0c9e11")
	urls   = RuntimeURLs{
		FrontendURL:         "https://exam.example.com/",
		InfrastructureHosts: []string{"*exam.example.com*", "*api.example.com*"},
	}
)

func strPtr(s string) *string { return &s }

func TestRender_InvertsRestrictionFlags(t *testing.T) {
	p := Render(examID, model.SecuritySettings{
		BlockClipboard:  true,
		BlockScreenshot: true,
		BlockDevTools:   true,
		BlockRightClick: false,
		BlockSpellCheck: true,
		HideTaskbar:     true,
	}, urls)

	assert.False(t, p.EnableClipboard)
	assert.False(t, p.EnablePrintScreen)
	assert.False(t, p.AllowScreenSharing)
	assert.False(t, p.EnableF12)
	assert.True(t, p.EnableRightMouse)
	assert.False(t, p.AllowSpellCheck)
	assert.False(t, p.ShowTaskBar)
}

func TestRender_URLs(t *testing.T) {
	p := Render(examID, model.SecuritySettings{}, urls)

	assert.Equal(t, "https://exam.example.com/exam/"+examID.String(), p.StartURL)
	assert.Equal(t, "https://exam.example.com/dashboard/student", p.QuitURL)
}

func TestRender_FilterRulesOrderAndDedup(t *testing.T) {
	p := Render(examID, model.SecuritySettings{
		AllowedURLs: []string{"*wikipedia.org*", " ", "*docs.example.com*"},
		BlockedURLs: []string{"*chat.example.ai*", "*wikipedia.org*"},
	}, urls)

	assert.Equal(t, []FilterRule{
		{Action: ActionAllow, Expression: "*wikipedia.org*"},
		{Action: ActionAllow, Expression: "*docs.example.com*"},
		{Action: ActionBlock, Expression: "*chat.example.ai*"},
		{Action: ActionAllow, Expression: "*exam.example.com*"},
		{Action: ActionAllow, Expression: "*api.example.com*"},
	}, p.URLFilterRules)
}

func TestRender_OptionalKeys(t *testing.T) {
	p := Render(examID, model.SecuritySettings{}, urls)
	assert.Empty(t, p.HashedQuitPassword)
	assert.Empty(t, p.BrowserExamKey)

	p = Render(examID, model.SecuritySettings{
		ExitCredential: strPtr("letmeout"),
		IntegrityKey:   strPtr("bek-123"),
	}, urls)
	assert.Equal(t, HashExitCredential("letmeout"), p.HashedQuitPassword)
	assert.Len(t, p.HashedQuitPassword, 64)
	assert.Equal(t, "bek-123", p.BrowserExamKey)
}

func TestEncode_Deterministic(t *testing.T) {
	s := model.SecuritySettings{
		AllowedURLs:    []string{"*a.example*"},
		BlockClipboard: true,
		ExitCredential: strPtr("x"),
	}

	first, err := Encode(Render(examID, s, urls))
	require.NoError(t, err)
	second, err := Encode(Render(examID, s, urls))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	doc := string(first)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	assert.Contains(t, doc, "<key>startURL</key>")
	assert.Contains(t, doc, "<key>hashedQuitPassword</key>")
	assert.NotContains(t, doc, "<key>browserExamKey</key>")
}

func TestEncode_RoundTripsThroughPlist(t *testing.T) {
	want := Render(examID, model.SecuritySettings{BlockedURLs: []string{"*x*"}}, urls)
	data, err := Encode(want)
	require.NoError(t, err)

	var got Profile
	_, err = plist.Unmarshal(data, &got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "exam_"+examID.String()+".seb", Filename(examID))
}
