package services

import "strings"

// DeviceDescriptor is a best-effort classification of a client's user-agent
// string. It is advisory display text only and never feeds an authorization
// decision.
type DeviceDescriptor struct {
	Browser string
	OS      string
	Known   bool
}

func (d DeviceDescriptor) String() string {
	return d.Browser + " on " + d.OS
}

func DescribeUserAgent(userAgent string) DeviceDescriptor {
	agent := strings.ToLower(userAgent)

	browser := "Unknown Browser"
	switch {
	case strings.Contains(agent, "firefox"):
		browser = "Firefox"
	case strings.Contains(agent, "edg"):
		browser = "Edge"
	case strings.Contains(agent, "chrome"):
		browser = "Chrome"
	case strings.Contains(agent, "safari"):
		browser = "Safari"
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(agent, "windows"):
		os = "Windows"
	case strings.Contains(agent, "iphone"):
		os = "iPhone"
	case strings.Contains(agent, "ipad"):
		os = "iPad"
	case strings.Contains(agent, "mac"):
		os = "Mac"
	case strings.Contains(agent, "android"):
		os = "Android"
	case strings.Contains(agent, "linux"):
		os = "Linux"
	}

	return DeviceDescriptor{
		Browser: browser,
		OS:      os,
		Known:   browser != "Unknown Browser" || os != "Unknown OS",
	}
}
