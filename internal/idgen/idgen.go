package idgen

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Generator issues invoice numbers and checkout transaction ids.
type Generator struct {
	node *snowflake.Node
}

func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// InvoiceNumber is time ordered and unique per node.
func (g *Generator) InvoiceNumber() string {
	return "INV-" + g.node.Generate().String()
}

func (g *Generator) TransactionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRX-" + strings.ToUpper(hex[:12])
}
