/*
Package critic 将评审协作方的原始判定转换为编排控制决策。

包含三部分：

  - Policy.Map: 纯函数策略映射器，先检查重试上限，再解释判定
  - ParseVerdict: 校验协作方原始输出，无法解析时回退为 revise/redo_retriever
  - Preview: 截取前 N 条证据，限制评审请求体大小
*/
package critic
