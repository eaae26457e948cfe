// Package tests 是 state-workflow 的集成测试。
//
// 此包位于 internal/ 目录下，外部项目无法导入。
//
// 测试内容：
//   - 审批工作流在 sqlite 上的完整生命周期（开始、事件、超时轮询）
//   - 同一个上下文的并发操作
//   - Document 上下文的保存和加载
//
// 运行测试：
//
//	go test ./internal/tests/...
package tests
