// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package relevance measures search quality against golden queries.
//
// A Harness runs each GoldenQuery through a Searcher with a fixed result
// cap and a loose threshold, then grades the ranking: whether an expected
// file appears in the top 1, 3 and 5 results, how many results mention an
// expected keyword, and the mean boosted score. A query passes when it has
// a top-3 hit, meets its minimum average similarity and matches at least
// two results by keyword. The run passes the quality gate when the hit
// rate @3 reaches the gate threshold, DefaultGateHitRate percent unless
// set with WithGateHitRate.
package relevance
