package testutil

// WithDesignSystemData adds a small design-system canvas: three tagged screens, an
// untagged component and a registry with one unused tag.
//
// Structure:
//
//	frame-1   Login        [auth, urgent]
//	frame-2   Checkout     [payments, urgent]
//	text-1    Say "hi"     [copy]       (tag "copy" is not registered)
//	comp-1    Button       []
func (b *Builder) WithDesignSystemData() *Builder {
	return b.
		WithTag("auth", Color("#3366ff")).
		WithTag("urgent", Color("#ff0000"), Emoji("🔥")).
		WithTag("payments").
		WithTag("archived", Color("#999999")).
		WithObject("frame-1", Name("Login"), Kind("FRAME"), Tags("auth", "urgent")).
		WithObject("frame-2", Name("Checkout"), Kind("FRAME"), Tags("payments", "urgent")).
		WithObject("text-1", Name(`Say "hi"`), Kind("TEXT"), Tags("copy")).
		WithObject("comp-1", Name("Button"), Kind("COMPONENT"))
}
