package consent

import (
	"context"
	"testing"

	gc "github.com/go-check/check"

	"github.com/mablr/trace2e-engine/naming"
)

// Hook gocheck into `go test`; this file uses go-check's suite style, while
// this package's other tests and the rest of the module use testify.
func TestGoCheck(t *testing.T) { gc.TestingT(t) }

type BrokerSuite struct{}

var _ = gc.Suite(&BrokerSuite{})

func (s *BrokerSuite) TestPendingListIsEmptyInitially(c *gc.C) {
	b := New(0)
	c.Assert(b.Pending(), gc.HasLen, 0)
}

func (s *BrokerSuite) TestSetWithoutPriorRequestIsRecorded(c *gc.C) {
	b := New(0)
	source := naming.NewFile("/tmp/gocheck.txt")
	dest := NodeDestination{Node: "10.0.0.9"}

	b.Set(source, dest, true)

	decision, err := b.Request(context.Background(), source, dest)
	c.Assert(err, gc.IsNil)
	c.Assert(decision, gc.Equals, true)
}
