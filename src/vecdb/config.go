package vecdb

import (
	"errors"
	"math"
)

// Distance enumerates the similarity metrics a collection can be configured
// with. Every metric is expressed as a distance: smaller is closer.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceDot    Distance = "dot"
)

// Between computes the distance between two vectors under d. Cosine yields
// 1-cos(a,b), l2 the squared euclidean distance, dot 1-(a·b). Mismatched
// lengths yield +Inf so malformed records sort last instead of panicking.
func (d Distance) Between(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	switch d {
	case DistanceL2:
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return sum
	case DistanceDot:
		return 1 - dot
	default: // cosine
		if normA == 0 || normB == 0 {
			return math.Inf(1)
		}
		return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	}
}

// Target is the tagged connection variant resolved once, at construction, by
// the chosen backend package.
type Target interface{ isTarget() }

// LocalTarget points a backend at an on-disk path.
type LocalTarget struct {
	Path string
}

func (LocalTarget) isTarget() {}

// RemoteTarget points a backend at a server, with optional basic-auth
// credentials and TLS.
type RemoteTarget struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

func (RemoteTarget) isTarget() {}

// Config describes the collection a Store operates on. Dimension 0 disables
// dimensionality validation in the backends that perform it.
type Config struct {
	Collection string
	Dimension  int
	Distance   Distance
	Target     Target
}

// Validate reports configuration a Store cannot operate with.
func (c Config) Validate() error {
	if c.Collection == "" {
		return errors.New("vecdb: collection name is required")
	}
	if c.Dimension < 0 {
		return errors.New("vecdb: dimension must not be negative")
	}
	switch c.Distance {
	case "", DistanceCosine, DistanceL2, DistanceDot:
		return nil
	}
	return errors.New("vecdb: unknown distance metric " + string(c.Distance))
}

// Metric returns the configured distance metric, defaulting to cosine.
func (c Config) Metric() Distance {
	if c.Distance == "" {
		return DistanceCosine
	}
	return c.Distance
}
