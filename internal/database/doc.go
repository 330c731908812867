// 版权所有 2024 AskFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接打开与连接池管理，供检查点的
SQL 存储后端使用。

# 核心类型

  - Config：驱动（postgres / mysql / sqlite）、连接参数与连接池参数。
  - PoolManager：持有 GORM DB 实例与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 与事务执行（WithTransaction / WithTransactionRetry）。

sqlite 使用纯 Go 驱动 github.com/glebarez/sqlite，无需 cgo；内存库
（":memory:"）强制单连接，保证所有语句落在同一个库上。
*/
package database
