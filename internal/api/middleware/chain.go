package middleware

import "github.com/gin-gonic/gin"

// Stage is one named middleware in a Chain.
type Stage struct {
	Name    string
	Handler gin.HandlerFunc
}

// Chain is an ordered list of middleware, outermost first. It is assembled
// once at startup and installed on a router.
type Chain struct {
	stages []Stage
}

// NewChain creates a chain from stages.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: append([]Stage(nil), stages...)}
}

// Append adds a stage inside the ones already present. A nil handler is skipped
// so optional middleware can be appended unconditionally.
func (c *Chain) Append(name string, h gin.HandlerFunc) *Chain {
	if h != nil {
		c.stages = append(c.stages, Stage{Name: name, Handler: h})
	}
	return c
}

// Names returns the stage names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Handlers returns the stage handlers in execution order.
func (c *Chain) Handlers() []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, len(c.stages))
	for i, s := range c.stages {
		handlers[i] = s.Handler
	}
	return handlers
}

// Install registers the chain on r.
func (c *Chain) Install(r gin.IRoutes) {
	r.Use(c.Handlers()...)
}
