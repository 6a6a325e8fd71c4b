package generation

import "strings"

// Classifier maps an error returned by the generation service while a video
// job is being polled to a failure kind.
type Classifier func(err error) Kind

// entityNotFound is the provider text seen when a job is queried with a
// stale or rotated key.
const entityNotFound = "Requested entity was not found"

// NotFoundClassifier treats the provider's "entity not found" message as an
// invalidated credential and every other error as transient.
//
// The match is on provider error text, so a wording change upstream silently
// turns credential failures into transient ones.
func NotFoundClassifier(err error) Kind {
	if err == nil {
		return ""
	}
	if strings.Contains(err.Error(), entityNotFound) {
		return KindCredentialInvalidated
	}
	return KindTransientProviderError
}

// Classify wraps err into a Failure using the given classifier.
func Classify(c Classifier, err error) *Failure {
	if c == nil {
		c = NotFoundClassifier
	}
	switch kind := c(err); kind {
	case KindCredentialInvalidated:
		return NewFailure(kind, MsgCredentialInvalidated, err)
	case "":
		return nil
	default:
		return NewFailure(kind, err.Error(), err)
	}
}
