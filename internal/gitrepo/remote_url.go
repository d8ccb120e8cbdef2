package gitrepo

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	requiredValueMessageConstant        = "value is required"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	unknownProtocolMessageConstant      = "unsupported remote protocol"
)

// RemoteProtocol enumerates supported git remote protocols.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
)

// RemoteURL represents a structured git remote URL. NamespacedPath preserves
// every path segment, so nested source namespaces survive parsing.
type RemoteURL struct {
	Protocol       RemoteProtocol
	Host           string
	NamespacedPath string
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the provided protocol cannot be formatted.
type UnsupportedProtocolError struct {
	Protocol RemoteProtocol
}

// Error describes the unsupported protocol.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unknownProtocolMessageConstant)
}

// ParseRemoteURL converts a textual remote URL into a structured representation.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	if strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant) {
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	}
	if strings.HasPrefix(trimmedRemote, gitUserPrefixConstant) {
		return parseSSHRemote(trimmedRemote)
	}
	if strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant) {
		return parseHTTPSRemote(strings.TrimPrefix(trimmedRemote, httpsProtocolPrefixConstant))
	}

	return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]

	var host string
	var path string
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	if pathSplitIndex == -1 {
		slashIndex := strings.Index(hostAndPath, pathSeparatorConstant)
		if slashIndex == -1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		host = hostAndPath[:slashIndex]
		path = hostAndPath[slashIndex+1:]
	} else {
		host = hostAndPath[:pathSplitIndex]
		path = hostAndPath[pathSplitIndex+1:]
	}

	normalizedPath, pathError := normalizeNamespacedPath(path)
	if pathError != nil {
		return RemoteURL{}, pathError
	}
	return RemoteURL{Protocol: RemoteProtocolSSH, Host: host, NamespacedPath: normalizedPath}, nil
}

func parseHTTPSRemote(remote string) (RemoteURL, error) {
	hostSplitIndex := strings.Index(remote, pathSeparatorConstant)
	if hostSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	host := remote[:hostSplitIndex]
	normalizedPath, pathError := normalizeNamespacedPath(remote[hostSplitIndex+1:])
	if pathError != nil {
		return RemoteURL{}, pathError
	}
	return RemoteURL{Protocol: RemoteProtocolHTTPS, Host: host, NamespacedPath: normalizedPath}, nil
}

func normalizeNamespacedPath(path string) (string, error) {
	trimmedPath := strings.Trim(strings.TrimSuffix(strings.TrimSpace(path), gitSuffixConstant), pathSeparatorConstant)
	if len(trimmedPath) == 0 || !strings.Contains(trimmedPath, pathSeparatorConstant) {
		return "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
	}
	return trimmedPath, nil
}

// FormatRemoteURL creates a textual remote URL from a structured representation.
func FormatRemoteURL(remote RemoteURL) (string, error) {
	if len(strings.TrimSpace(remote.Host)) == 0 {
		return "", RemoteURLParseError{Input: remote.Host, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.NamespacedPath)) == 0 {
		return "", RemoteURLParseError{Input: remote.NamespacedPath, Message: requiredValueMessageConstant}
	}

	switch remote.Protocol {
	case RemoteProtocolSSH:
		return fmt.Sprintf("%s%s%s%s%s", gitUserPrefixConstant, remote.Host, sshPathDelimiterConstant, remote.NamespacedPath, gitSuffixConstant), nil
	case RemoteProtocolHTTPS:
		return fmt.Sprintf("%s%s%s%s%s", httpsProtocolPrefixConstant, remote.Host, pathSeparatorConstant, remote.NamespacedPath, gitSuffixConstant), nil
	default:
		return "", UnsupportedProtocolError{Protocol: remote.Protocol}
	}
}

// WithCredentials embeds request-scoped credentials into an HTTPS remote URL.
// The result is only ever passed as a command argument; it is never written
// into any persisted remote configuration.
func WithCredentials(remoteValue string, username string, token string) (string, error) {
	parsedURL, parseFailure := url.Parse(strings.TrimSpace(remoteValue))
	if parseFailure != nil || parsedURL.Scheme != "https" || len(parsedURL.Host) == 0 {
		return "", RemoteURLParseError{Input: remoteValue, Message: invalidRemoteURLMessageConstant}
	}
	parsedURL.User = url.UserPassword(username, token)
	return parsedURL.String(), nil
}
