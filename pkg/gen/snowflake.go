package gen

import (
	"os"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

func NewNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		zap.L().Error("failed to init snowflake node", zap.Error(err))
		os.Exit(1)
	}
	return node
}
