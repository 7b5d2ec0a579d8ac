package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sb-console/engine/pkg/errors"
)

// EnvFile models the .env file the console persists connection selection and
// credentials to. Only the recognized keys are understood structurally;
// every other line is kept verbatim so unrelated tooling that also reads
// this file (shell sourcing, other scripts) is not disturbed.
type EnvFile struct {
	TenantID         string
	ClientID         string
	ClientSecret     string
	SubscriptionID   string
	ResourceGroup    string
	Namespace        string
	ConnectionString string
	QueueName        string

	order    []string          // not populated; rawLines records key order
	unknown  []string          // not populated; rawLines keeps unrecognized lines verbatim
	present  map[string]bool   // which recognized keys were present in the source file
	rawLines []envLine         // full original line list, used to rewrite in place
}

type envLine struct {
	isRecognized bool
	key          string // only set when isRecognized
	raw          string // only set when !isRecognized
}

var recognizedEnvKeys = []string{
	"TENANT_ID", "CLIENT_ID", "CLIENT_SECRET", "SUBSCRIPTION_ID",
	"RESOURCE_GROUP", "NAMESPACE", "CONNECTION_STRING", "QUEUE_NAME",
}

// quotedEnvKeys must be double-quoted on write; connection strings routinely
// contain ';' and '=' which would otherwise be ambiguous to re-parse.
var quotedEnvKeys = map[string]bool{"CONNECTION_STRING": true}

// LoadEnvFile parses path, preserving unrecognized lines for a later save.
// A missing file is not an error; it yields a zero-value EnvFile ready to be
// populated and saved.
func LoadEnvFile(path string) (*EnvFile, error) {
	ef := &EnvFile{present: make(map[string]bool)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return ef, nil
	}
	if err != nil {
		return nil, errors.Configuration("failed to open env file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, val, ok := parseEnvLine(line)
		if !ok {
			ef.rawLines = append(ef.rawLines, envLine{raw: line})
			continue
		}
		if !isRecognizedKey(key) {
			ef.rawLines = append(ef.rawLines, envLine{raw: line})
			continue
		}
		ef.rawLines = append(ef.rawLines, envLine{isRecognized: true, key: key})
		ef.present[key] = true
		ef.assign(key, val)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Configuration("failed to read env file", err)
	}
	return ef, nil
}

func (ef *EnvFile) assign(key, val string) {
	switch key {
	case "TENANT_ID":
		ef.TenantID = val
	case "CLIENT_ID":
		ef.ClientID = val
	case "CLIENT_SECRET":
		ef.ClientSecret = val
	case "SUBSCRIPTION_ID":
		ef.SubscriptionID = val
	case "RESOURCE_GROUP":
		ef.ResourceGroup = val
	case "NAMESPACE":
		ef.Namespace = val
	case "CONNECTION_STRING":
		ef.ConnectionString = val
	case "QUEUE_NAME":
		ef.QueueName = val
	}
}

func (ef *EnvFile) value(key string) (string, bool) {
	switch key {
	case "TENANT_ID":
		return ef.TenantID, ef.TenantID != ""
	case "CLIENT_ID":
		return ef.ClientID, ef.ClientID != ""
	case "CLIENT_SECRET":
		return ef.ClientSecret, ef.ClientSecret != ""
	case "SUBSCRIPTION_ID":
		return ef.SubscriptionID, ef.SubscriptionID != ""
	case "RESOURCE_GROUP":
		return ef.ResourceGroup, ef.ResourceGroup != ""
	case "NAMESPACE":
		return ef.Namespace, ef.Namespace != ""
	case "CONNECTION_STRING":
		return ef.ConnectionString, ef.ConnectionString != ""
	case "QUEUE_NAME":
		return ef.QueueName, ef.QueueName != ""
	}
	return "", false
}

func isRecognizedKey(key string) bool {
	for _, k := range recognizedEnvKeys {
		if k == key {
			return true
		}
	}
	return false
}

// parseEnvLine splits a KEY=VALUE line, stripping a single layer of
// surrounding double quotes from VALUE. Comments (#) and blank lines are
// reported as not-ok so the caller preserves them verbatim.
func parseEnvLine(line string) (key, val string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	idx := strings.Index(trimmed, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(trimmed[:idx])
	val = strings.TrimSpace(trimmed[idx+1:])
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	return key, val, true
}

// Save writes the EnvFile back to path, updating recognized keys in place
// (preserving their original position and any unrecognized lines verbatim)
// and appending any recognized key that is newly set but wasn't present in
// the source file.
func (ef *EnvFile) Save(path string) error {
	var b strings.Builder
	written := make(map[string]bool)

	for _, l := range ef.rawLines {
		if !l.isRecognized {
			b.WriteString(l.raw)
			b.WriteString("\n")
			continue
		}
		val, has := ef.value(l.key)
		if !has {
			continue // key was cleared; drop the line
		}
		fmt.Fprintf(&b, "%s=%s\n", l.key, formatEnvValue(l.key, val))
		written[l.key] = true
	}

	for _, key := range recognizedEnvKeys {
		if written[key] {
			continue
		}
		val, has := ef.value(key)
		if !has {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", key, formatEnvValue(key, val))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return errors.Configuration("failed to write env file", err)
	}
	return nil
}

func formatEnvValue(key, val string) string {
	if quotedEnvKeys[key] {
		return `"` + val + `"`
	}
	return val
}
