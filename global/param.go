package global

// MSG 消息Map
type MSG = map[string]any
