package debug

type Core interface {
	EnvReport() map[string]interface{}
}
