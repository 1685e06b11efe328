package transport

import (
	"github.com/tidwall/gjson"
)

func gjsonString(data []byte, path string) string {
	return gjson.GetBytes(data, path).String()
}
