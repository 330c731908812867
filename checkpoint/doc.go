/*
Package checkpoint 为每个任务保存一份检查点快照，用于断点续跑。

检查点记录 {task_id, last_step, next_step, state, memory}，每完成一个阶段
整体覆盖一次；同一任务任意时刻只有一份检查点，不保留历史。

后端：

  - FileStore: 每个任务一个 JSON 文件，直接覆盖写入，不做原子 rename，
    写入过程中崩溃可能损坏文件（已知限制）
  - RedisStore: 每个任务一个字符串键
  - SQLStore: GORM 表 task_checkpoints，按 task_id upsert
*/
package checkpoint
