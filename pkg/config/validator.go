package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a single config validation error.
type ValidationError struct {
	Path    string // Config path, e.g., "subscribers[0].target"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult contains all validation errors for a Config.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message.
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(path, message string) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message})
}

// Validate checks the whole configuration and returns every error found.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	identityNames := make(map[string]bool)
	for i, id := range c.Identities {
		path := fmt.Sprintf("identities[%d]", i)
		if id.Name == "" {
			result.AddError(path+".name", "required")
		} else {
			if identityNames[id.Name] {
				result.AddError(path+".name", fmt.Sprintf("duplicate identity name %q", id.Name))
			}
			identityNames[id.Name] = true
		}
		if id.Token == "" {
			result.AddError(path+".token", "required")
		}
	}

	publisherQueues := make(map[string]bool)
	for i, pub := range c.Publishers {
		path := fmt.Sprintf("publishers[%d]", i)
		validateQueueName(pub.Queue, path, publisherQueues, result)

		switch pub.ContentType {
		case ContentTypeBinary:
			if pub.Schema != nil {
				result.AddError(path+".schema", "only valid with contentType json")
			}
		case ContentTypeJSON:
			// schema optional
		default:
			result.AddError(path+".contentType", fmt.Sprintf("invalid content type %q, must be binary or json", pub.ContentType))
		}

		validateIdentityRefs(pub.Identities, path, identityNames, result)
	}

	consumerQueues := make(map[string]bool)
	for i, con := range c.Consumers {
		path := fmt.Sprintf("consumers[%d]", i)
		validateQueueName(con.Queue, path, consumerQueues, result)
		validateIdentityRefs(con.Identities, path, identityNames, result)
	}

	subscriberQueues := make(map[string]bool)
	for i, sub := range c.Subscribers {
		path := fmt.Sprintf("subscribers[%d]", i)
		validateQueueName(sub.Queue, path, subscriberQueues, result)

		if sub.Target == "" {
			result.AddError(path+".target", "required")
		} else if u, err := url.Parse(sub.Target); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result.AddError(path+".target", fmt.Sprintf("invalid target %q, must be an absolute http(s) URL", sub.Target))
		}

		if sub.ContentType != ContentTypeBinary && sub.ContentType != ContentTypeJSON {
			result.AddError(path+".contentType", fmt.Sprintf("invalid content type %q, must be binary or json", sub.ContentType))
		}
		if sub.Prefetch < 1 {
			result.AddError(path+".prefetch", fmt.Sprintf("invalid prefetch %d, must be >= 1", sub.Prefetch))
		}
		if sub.TimeoutMs <= 0 {
			result.AddError(path+".timeoutMs", fmt.Sprintf("invalid timeout %d, must be > 0", sub.TimeoutMs))
		}
		if sub.Retries < 0 {
			result.AddError(path+".retries", fmt.Sprintf("invalid retries %d, must be >= 0", sub.Retries))
		}
		if sub.RetryDelayMs < 0 {
			result.AddError(path+".retryDelayMs", fmt.Sprintf("invalid retry delay %d, must be >= 0", sub.RetryDelayMs))
		}
		switch sub.Backoff {
		case BackoffFixed, BackoffLinear, BackoffExponential:
		default:
			result.AddError(path+".backoff", fmt.Sprintf("invalid backoff %q, must be one of: fixed, linear, exponential", sub.Backoff))
		}
	}

	return result
}

func validateQueueName(queue, path string, seen map[string]bool, result *ValidationResult) {
	if queue == "" {
		result.AddError(path+".queue", "required")
		return
	}
	if strings.ContainsAny(queue, "/ ") {
		result.AddError(path+".queue", fmt.Sprintf("invalid queue name %q, must not contain slashes or spaces", queue))
	}
	if seen[queue] {
		result.AddError(path+".queue", fmt.Sprintf("duplicate queue %q in section", queue))
	}
	seen[queue] = true
}

func validateIdentityRefs(refs []string, path string, identityNames map[string]bool, result *ValidationResult) {
	for i, name := range refs {
		if !identityNames[name] {
			result.AddError(fmt.Sprintf("%s.identities[%d]", path, i), fmt.Sprintf("references unknown identity %q", name))
		}
	}
}
