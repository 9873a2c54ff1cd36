package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"distributed-kvstore/internal/node"

	"github.com/gin-gonic/gin"
)

// readRelayBody reads the raw request body. requireRelayHeaders already
// consumed and rewound it once to verify the signature, so this is a
// second, cheap read of the same buffered body.
func readRelayBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(c.Request.Body)
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryDuration(c *gin.Context, key string, def, max time.Duration) time.Duration {
	v := c.Query(key)
	if v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return def
	}
	d := time.Duration(ms) * time.Millisecond
	if d > max {
		return max
	}
	return d
}

// admissionStatus maps an admission Kind to the HTTP status the
// Boundary layer reports it with (spec §7).
func admissionStatus(k node.Kind) int {
	switch k {
	case node.KindWrongSwarm:
		return http.StatusMisdirectedRequest
	case node.KindInvalidTTL, node.KindInvalidTimestamp, node.KindInvalidPoW, node.KindHashMismatch:
		return http.StatusBadRequest
	case node.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case node.KindDatabaseError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeAdmissionError renders an AdmissionError as JSON, including the
// redirect swarm for WRONG_SWARM so the client can retry elsewhere.
func writeAdmissionError(c *gin.Context, admErr *node.AdmissionError) {
	body := gin.H{"error": admErr.Kind.String()}
	if admErr.Kind == node.KindWrongSwarm {
		body["swarm"] = admErr.RedirectSwarm
	}
	c.JSON(admissionStatus(admErr.Kind), body)
}
