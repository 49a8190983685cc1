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

// Package search ranks stored chunks against a natural-language query.
//
// A search embeds the query once, scans every chunk in the store and
// computes cosine similarity against each chunk vector. The similarity is
// then multiplied by the factors of a BoostPolicy (keyword, recency, file
// type and caller-supplied metadata fields by default). Results at or
// above the threshold are returned best first, capped at MaxResults.
//
// Chunks embedded with a model other than the searcher's are skipped so
// vectors from different embedding spaces are never compared.
package search
