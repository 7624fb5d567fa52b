package utils

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

/**
 * Render a command line from templates
 * @param {string} command - Executable, may itself be a template
 * @param {[]string} args - Argument templates, one argv entry each
 * @param {interface{}} data - Template data
 * @returns {(string, []string, error)} Rendered command and arguments
 * @description
 * - Each argument stays a single argv entry, no shell word splitting happens
 * - Surrounding whitespace of rendered arguments is trimmed
 */
func GetCommandLine(command string, args []string, data interface{}) (string, []string, error) {
	cmd, err := renderTemplate("command", command, data)
	if err != nil {
		return "", nil, err
	}

	// 处理Args模板
	processedArgs := make([]string, 0, len(args))
	for _, arg := range args {
		s, err := renderTemplate("arg", arg, data)
		if err != nil {
			return "", nil, fmt.Errorf("arg '%s': %w", arg, err)
		}
		processedArgs = append(processedArgs, strings.TrimSpace(s))
	}
	return cmd, processedArgs, nil
}

func renderTemplate(name, text string, data interface{}) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

// FormatCommandLine joins a command for logging, quoting arguments that contain spaces
func FormatCommandLine(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, s := range append([]string{command}, args...) {
		if strings.ContainsAny(s, " \t") {
			s = `"` + s + `"`
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
