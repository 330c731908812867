// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
包 migration 以 golang-migrate 管理 postgres 与 mysql 上的检查点表结构。

迁移文件内嵌于 migrations/<driver>/，按 NNNNNN_name.{up,down}.sql 命名。
Migrator 使用独立连接，关闭时不影响应用连接池。sqlite 的表结构由检查点
存储通过 GORM AutoMigrate 自行维护，ParseDatabaseType 对其返回
ErrAutoMigrated。
*/
package migration
