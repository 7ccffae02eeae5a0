// Package registry 提供溯源来源注册表：每个外部知识片段的
// source_id@version 必须能在此解析，否则在进入管线前被丢弃。
package registry
