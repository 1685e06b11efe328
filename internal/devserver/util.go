package devserver

import "github.com/tidwall/gjson"

func gjsonString(data []byte, path string) string {
	return gjson.GetBytes(data, path).String()
}

func isJSONObject(data []byte) bool {
	return len(data) > 0 && gjson.ValidBytes(data) && gjson.ParseBytes(data).IsObject()
}
