package messaging

import (
	"fmt"

	"github.com/noesisproject/noesis/internal/storage"
)

// Subject layout. Each viewer owns one information subject; consumers
// never share channels. Acknowledgements flow back on a single shared
// subject and name the viewer in the body.

const SubjectAck = "ack"

func InfoSubject(viewer storage.Identifier) string {
	return fmt.Sprintf("info.%s", viewer)
}
