// Package lockprofile renders an exam's security settings into a locked-browser
// configuration document (Safe Exam Browser .seb, XML property list).
//
// Polarity: exam authors toggle restrictions ("block clipboard"), while the browser
// expects permissions ("enableClipboard"). Every capability key is therefore the
// negation of the matching SecuritySettings flag. Rendering is deterministic: the same
// exam and runtime URLs always yield byte-identical output.
package lockprofile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"howett.net/plist"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ContentType is served with encoded profiles.
const ContentType = "application/seb"

// Filter rule actions.
const (
	ActionBlock = 0
	ActionAllow = 1
)

// RuntimeURLs are deployment-level inputs to rendering.
type RuntimeURLs struct {
	FrontendURL string
	// InfrastructureHosts are always allowed so the exam app itself keeps working.
	InfrastructureHosts []string
}

// FilterRule is one URL filter entry.
type FilterRule struct {
	Action     int    `plist:"action"`
	Expression string `plist:"expression"`
	Regex      bool   `plist:"regex"`
}

// Profile is the rendered document, grouped the way the browser's settings screens are.
type Profile struct {
	StartURL                       string `plist:"startURL"`
	SendBrowserExamKey             bool   `plist:"sendBrowserExamKey"`
	ExamSessionClearCookiesOnStart bool   `plist:"examSessionClearCookiesOnStart"`
	BrowserViewMode                int    `plist:"browserViewMode"`

	AllowQuit          bool   `plist:"allowQuit"`
	QuitURL            string `plist:"quitURL"`
	HashedQuitPassword string `plist:"hashedQuitPassword,omitempty"`
	IgnoreExitKeys     bool   `plist:"ignoreExitKeys"`
	QuitURLConfirm     bool   `plist:"quitURLConfirm"`

	EnableClipboard        bool `plist:"enableClipboard"`
	EnablePrintScreen      bool `plist:"enablePrintScreen"`
	AllowScreenSharing     bool `plist:"allowScreenSharing"`
	EnablePrivateClipboard bool `plist:"enablePrivateClipboard"`

	EnableF1         bool `plist:"enableF1"`
	EnableF5         bool `plist:"enableF5"`
	EnableF12        bool `plist:"enableF12"`
	EnableAltTab     bool `plist:"enableAltTab"`
	EnableAltF4      bool `plist:"enableAltF4"`
	EnableEsc        bool `plist:"enableEsc"`
	EnableRightMouse bool `plist:"enableRightMouse"`
	EnableCtrlEsc    bool `plist:"enableCtrlEsc"`
	EnableStartMenu  bool `plist:"enableStartMenu"`

	ShowTaskBar           bool `plist:"showTaskBar"`
	ShowMenuBar           bool `plist:"showMenuBar"`
	ShowReloadButton      bool `plist:"showReloadButton"`
	ShowTime              bool `plist:"showTime"`
	EnableZoomPage        bool `plist:"enableZoomPage"`
	AllowSpellCheck       bool `plist:"allowSpellCheck"`
	AllowDictionaryLookup bool `plist:"allowDictionaryLookup"`

	AllowBrowsingBackForward       bool `plist:"allowBrowsingBackForward"`
	NewBrowserWindowByLinkPolicy   int  `plist:"newBrowserWindowByLinkPolicy"`
	NewBrowserWindowByScriptPolicy int  `plist:"newBrowserWindowByScriptPolicy"`

	URLFilterEnable              bool         `plist:"URLFilterEnable"`
	URLFilterEnableContentFilter bool         `plist:"URLFilterEnableContentFilter"`
	URLFilterRules               []FilterRule `plist:"URLFilterRules"`

	AllowVideoCapture bool `plist:"allowVideoCapture"`
	AllowAudioCapture bool `plist:"allowAudioCapture"`
	AllowUseOfCamera  bool `plist:"allowUseOfCamera"`

	DetectStoppedProcess bool `plist:"detectStoppedProcess"`
	AllowVirtualMachine  bool `plist:"allowVirtualMachine"`
	AllowSiri            bool `plist:"allowSiri"`
	AllowDictation       bool `plist:"allowDictation"`

	BrowserExamKey string `plist:"browserExamKey,omitempty"`
}

// Render builds the profile for one exam.
func Render(examID uuid.UUID, s model.SecuritySettings, urls RuntimeURLs) Profile {
	base := strings.TrimRight(urls.FrontendURL, "/")

	p := Profile{
		StartURL:                       fmt.Sprintf("%s/exam/%s", base, examID),
		SendBrowserExamKey:             true,
		ExamSessionClearCookiesOnStart: true,
		BrowserViewMode:                1,

		AllowQuit:      true,
		QuitURL:        base + "/dashboard/student",
		IgnoreExitKeys: true,

		EnableClipboard:    !s.BlockClipboard,
		EnablePrintScreen:  !s.BlockScreenshot,
		AllowScreenSharing: !s.BlockScreenshot,
		EnableF12:          !s.BlockDevTools,
		EnableAltTab:       true,
		EnableRightMouse:   !s.BlockRightClick,
		ShowTaskBar:        !s.HideTaskbar,
		ShowTime:           true,
		AllowSpellCheck:    !s.BlockSpellCheck,

		URLFilterEnable: true,
		URLFilterRules:  filterRules(s, urls.InfrastructureHosts),

		AllowVideoCapture: true,
		AllowAudioCapture: true,
		AllowUseOfCamera:  true,

		DetectStoppedProcess: true,
	}

	if s.ExitCredential != nil && *s.ExitCredential != "" {
		p.HashedQuitPassword = HashExitCredential(*s.ExitCredential)
	}
	if s.IntegrityKey != nil && *s.IntegrityKey != "" {
		p.BrowserExamKey = *s.IntegrityKey
	}
	return p
}

// HashExitCredential is the hex SHA-256 digest the locked browser compares the typed quit password against.
func HashExitCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Encode serializes p as an XML property list.
func Encode(p Profile) ([]byte, error) {
	data, err := plist.MarshalIndent(p, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock profile: %w", err)
	}
	return data, nil
}

// Filename is the attachment name offered to the browser.
func Filename(examID uuid.UUID) string {
	return fmt.Sprintf("exam_%s.seb", examID)
}

// filterRules lists allowed, then blocked, then infrastructure entries. The first
// occurrence of an expression wins so an author's block is never shadowed by a later allow.
func filterRules(s model.SecuritySettings, infra []string) []FilterRule {
	rules := make([]FilterRule, 0, len(s.AllowedURLs)+len(s.BlockedURLs)+len(infra))
	seen := make(map[string]struct{})

	add := func(action int, exprs []string) {
		for _, e := range exprs {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			rules = append(rules, FilterRule{Action: action, Expression: e})
		}
	}

	add(ActionAllow, s.AllowedURLs)
	add(ActionBlock, s.BlockedURLs)
	add(ActionAllow, infra)
	return rules
}
