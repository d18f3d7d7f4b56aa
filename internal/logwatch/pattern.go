// Package logwatch waits for markers to appear in log files and live log
// streams.
package logwatch

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Pattern matches log content.
type Pattern interface {
	Match(content string) bool
	String() string
}

type substring string

func (s substring) Match(content string) bool { return strings.Contains(content, string(s)) }
func (s substring) String() string            { return string(s) }

// Substring matches content containing s.
func Substring(s string) Pattern { return substring(s) }

type regexpPattern struct{ re *regexp.Regexp }

func (p regexpPattern) Match(content string) bool { return p.re.MatchString(content) }
func (p regexpPattern) String() string            { return p.re.String() }

// Regexp matches content the expression matches anywhere in.
func Regexp(re *regexp.Regexp) Pattern { return regexpPattern{re: re} }

// MustCompile compiles expr into a Pattern and panics on a bad expression.
func MustCompile(expr string) Pattern { return Regexp(regexp.MustCompile(expr)) }

// Channel names a log the extension writes to its own file.
type Channel string

const (
	ChannelExtension Channel = "React Native"
	ChannelExpo      Channel = "Expo"
	ChannelPackager  Channel = "React Native: Packager"
)

var channelFiles = map[Channel]string{
	ChannelExtension: "ReactNative.txt",
	ChannelExpo:      "ExpoLogs.txt",
	ChannelPackager:  "Packager.txt",
}

// Path resolves the log file of channel inside dir. Unknown channels map to
// "<channel>.txt" with spaces and colons removed.
func Path(dir string, channel Channel) string {
	name, ok := channelFiles[channel]
	if !ok {
		name = strings.NewReplacer(" ", "", ":", "").Replace(string(channel)) + ".txt"
	}
	return filepath.Join(dir, name)
}
