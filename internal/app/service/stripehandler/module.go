package stripehandler

import "go.uber.org/fx"

// Module exposes the Stripe webhook handler via Fx.
var Module = fx.Options(
	fx.Provide(NewHandler),
)
