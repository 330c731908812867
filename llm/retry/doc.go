// 包 retry 提供泛型的指数退避重试，LLM 客户端用它重试可恢复的上游错误。
package retry
