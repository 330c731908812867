// Copyright (c) AskFlow Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 提供编排器使用的检索协作方。

检索协作方对同一 (query, topK) 在一个会话内必须返回相同结果，
编排器依赖这一点保证断点续跑与首次运行产生相同的轨迹。

# 核心类型

  - Document: 语料文档（id / title / text）
  - KeywordRetriever: 基于 BM25 的关键词检索，中文按二元组切分，英文按单词切分
  - CachedRetriever: Redis 缓存包装器，在会话内固定检索结果
  - SampleDocuments / LoadCorpus: 内置示例语料与 YAML/JSON 语料加载
*/
package rag
